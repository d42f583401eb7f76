package tttdto

import "fmt"

// DomainError is the payload of the error event and of non-2xx HTTP answers.
type DomainError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("ttt error %d", e.Code)
}
