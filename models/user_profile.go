package models

// UserProfile defines the structure for user profiles
type UserProfile struct {
	UserID    string   `dynamodbav:"userId" json:"userId"`
	Username  string   `dynamodbav:"username,omitempty" json:"username,omitempty"`
	Bio       string   `dynamodbav:"bio,omitempty" json:"bio,omitempty"`
	Gender    string   `dynamodbav:"gender,omitempty" json:"gender,omitempty"`
	AvatarID  string   `dynamodbav:"avatarId,omitempty" json:"avatarId,omitempty"`
	Photos    []string `dynamodbav:"photos,omitempty" json:"photos,omitempty"`
	CreatedAt int64    `dynamodbav:"createdAt,omitempty" json:"createdAt,omitempty"`
	UpdatedAt int64    `dynamodbav:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

// UserProfilesTable is the DynamoDB table name for user profiles
const UserProfilesTable = "UserProfiles"
