package auth

import "golang.org/x/crypto/bcrypt"

// HashPassword returns a bcrypt hash of the password. The salt is embedded
// in the hash, so nothing besides the hash needs to be stored.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword validates a password against a stored bcrypt hash.
// bcrypt's comparison is constant-time.
func CheckPassword(password, stored string) bool {
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
}
