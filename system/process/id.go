package process

import "github.com/google/uuid"

func newInstanceID() string {
	return uuid.New().String()
}
