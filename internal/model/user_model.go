package model

// User is the authenticated principal attached to a connection.
type User struct {
	Identifier  string                 `json:"identifier"`
	DisplayName string                 `json:"display_name,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}
