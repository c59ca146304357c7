package provision

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"

	"github.com/inkclock/inkclock/internal/radio"
)

const (
	fieldSSID     = "ssid"
	fieldPassword = "password"

	// maxPartBytes bounds how much of any single part is read.
	maxPartBytes = 256
)

// ParseForm extracts credentials from a multipart/form-data body.
//
// Field order does not matter and unknown fields are ignored. Values are
// trimmed of surrounding whitespace. The password may be empty for open
// networks but the field must be present. Values longer than 32 bytes are
// rejected. The returned credentials are not marked provisioned.
func ParseForm(contentType string, body io.Reader) (radio.Credentials, error) {
	var creds radio.Credentials

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "multipart/form-data" {
		return creds, &FormError{Kind: NotMultipart, Err: err}
	}
	boundary := params["boundary"]
	if boundary == "" {
		return creds, &FormError{Kind: MissingBoundary}
	}

	var haveSSID, havePassword bool
	reader := multipart.NewReader(body, boundary)
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return creds, &FormError{Kind: Malformed, Err: err}
		}

		name := part.FormName()
		if name != fieldSSID && name != fieldPassword {
			part.Close()
			continue
		}

		limit := radio.MaxSSIDLen
		if name == fieldPassword {
			limit = radio.MaxPasswordLen
		}
		value, err := readValue(part, limit)
		part.Close()
		if err != nil {
			return creds, &FormError{Kind: Malformed, Field: name, Err: err}
		}

		switch name {
		case fieldSSID:
			creds.SSID = value
			haveSSID = true
		case fieldPassword:
			creds.Password = value
			havePassword = true
		}
	}

	if !haveSSID || creds.SSID == "" {
		return creds, &FormError{Kind: MissingField, Field: fieldSSID}
	}
	if !havePassword {
		return creds, &FormError{Kind: MissingField, Field: fieldPassword}
	}
	return creds, nil
}

func readValue(part *multipart.Part, limit int) (string, error) {
	data, err := io.ReadAll(io.LimitReader(part, maxPartBytes+1))
	if err != nil {
		return "", err
	}
	if len(data) > maxPartBytes {
		return "", fmt.Errorf("value exceeds %d bytes", maxPartBytes)
	}
	value := bytes.TrimSpace(data)
	if len(value) > limit {
		return "", fmt.Errorf("value is %d bytes, limit is %d", len(value), limit)
	}
	return string(value), nil
}
