package sso

// UserIdentity adapts a User into the Identity interface for token generation.
type UserIdentity struct {
	user *User
}

// NewIdentityFromUser returns an Identity adapter for the provided user.
func NewIdentityFromUser(user *User) Identity {
	if user == nil {
		return nil
	}
	return UserIdentity{user: user}
}

func (u UserIdentity) ID() string {
	if u.user == nil {
		return ""
	}
	return u.user.ID.String()
}

func (u UserIdentity) NationalID() string {
	if u.user == nil {
		return ""
	}
	return u.user.NationalID
}

func (u UserIdentity) Email() string {
	if u.user == nil {
		return ""
	}
	return u.user.Email
}

func (u UserIdentity) FullName() string {
	if u.user == nil {
		return ""
	}
	return u.user.FullName
}

// User returns the wrapped record
func (u UserIdentity) User() *User {
	return u.user
}
