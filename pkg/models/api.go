package models

// AuthResponse is the body returned by login, signup and refresh.
// Success is a pointer because older servers omit it.
type AuthResponse struct {
	Success      *bool  `json:"success,omitempty"`
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	Message      string `json:"message,omitempty"`
	UserType     string `json:"userType,omitempty"`
}

// Succeeded applies the server's success flag, falling back to whether an
// access token was issued.
func (r *AuthResponse) Succeeded() bool {
	if r.Success != nil {
		return *r.Success
	}
	return r.AccessToken != ""
}

// RefreshRequest is the body of POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// RenameMemberRequest is the body of POST /host/name.
type RenameMemberRequest struct {
	BeforeName string `json:"beforeName"`
	AfterName  string `json:"afterName"`
}

// ThresholdsRequest is the body of POST /host/distance.
type ThresholdsRequest struct {
	Safe    float64 `json:"safe"`
	Warning float64 `json:"warning"`
	Danger  float64 `json:"danger"`
}

// StatusResponse is the generic acknowledgement returned by host settings calls.
type StatusResponse struct {
	Success *bool  `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
}

// CredentialsBody builds the login or signup body. The identifier key depends on
// the role; deviceID is only included when non-empty.
func CredentialsBody(role Role, userID, password, deviceID string) map[string]string {
	body := map[string]string{
		role.IDField(): userID,
		"password":     password,
	}
	if deviceID != "" {
		body["deviceId"] = deviceID
	}
	return body
}
