package provider

import (
	"encoding/json"
	"fmt"
	"strconv"
)

const unknownErrorDescription = "Unknown error"

// Error is a provider failure. Code is nil when the provider gave none.
type Error struct {
	Code        *string
	Description string
	Err         error
}

func (e *Error) Error() string {
	code := "<nil>"
	if e.Code != nil {
		code = *e.Code
	}
	msg := fmt.Sprintf("provider error: code=%s description=%s", code, e.Description)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// CodeString returns Code or an empty string.
func (e *Error) CodeString() string {
	if e.Code == nil {
		return ""
	}
	return *e.Code
}

// NewError builds an Error from optional code and description values as
// they appear in provider JSON.
func NewError(code any, description string) *Error {
	return &Error{Code: stringOrNil(code), Description: description}
}

// TranslateResponse turns a failed provider response into an Error.
// A JSON body contributes its error and error_description members; any
// other body yields the HTTP status as code and "Unknown error".
func TranslateResponse(status int, body []byte) *Error {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil || doc == nil {
		code := strconv.Itoa(status)
		return &Error{Code: &code, Description: unknownErrorDescription}
	}

	desc, _ := doc["error_description"].(string)
	return &Error{Code: stringOrNil(doc["error"]), Description: desc}
}

func stringOrNil(v any) *string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return &t
	default:
		s := fmt.Sprint(t)
		return &s
	}
}
