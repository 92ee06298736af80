package vault

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
)

var (
	base32SecretPattern = regexp.MustCompile(`(?i)^[A-Z2-7]+=*$`)
	// Credential URI schemes the importer understands in place of a bare base32 secret.
	recognizedTOTPSchemes = []string{"otpauth://", "steam://"}
)

// Payload is the type-specific part of an item. The concrete types are
// LoginPayload, SecureNotePayload, CardPayload and IdentityPayload.
type Payload interface {
	// Type reports the item type tag the payload belongs to.
	Type() ItemType
	// Raw returns the payload JSON, nil when the item carries none.
	Raw() json.RawMessage
	attributeName() string
}

// LoginPayload holds username, password, URIs and the optional TOTP secret.
type LoginPayload struct {
	body json.RawMessage
}

// Type implements Payload.
func (LoginPayload) Type() ItemType { return ItemTypeLogin }

// Raw implements Payload.
func (payload LoginPayload) Raw() json.RawMessage { return cloneRaw(payload.body) }

func (LoginPayload) attributeName() string { return attributeLoginConstant }

// TOTP returns the one-time-password secret when the login carries a string value. A null or
// non-string TOTP counts as absent.
func (payload LoginPayload) TOTP() (string, bool) {
	attributes, decoded := payload.attributes()
	if !decoded {
		return "", false
	}
	rawSecret, present := attributes[loginTOTPAttributeConstant]
	if !present || !bytes.HasPrefix(bytes.TrimSpace(rawSecret), []byte(`"`)) {
		return "", false
	}
	var secret string
	if decodeError := json.Unmarshal(rawSecret, &secret); decodeError != nil {
		return "", false
	}
	return secret, true
}

// WithoutTOTP returns a copy of the login with the TOTP attribute removed and every other attribute intact.
func (payload LoginPayload) WithoutTOTP() (LoginPayload, error) {
	attributes, decoded := payload.attributes()
	if !decoded {
		return payload, nil
	}
	if _, present := attributes[loginTOTPAttributeConstant]; !present {
		return payload, nil
	}
	delete(attributes, loginTOTPAttributeConstant)
	encoded, encodeError := MarshalCompact(attributes)
	if encodeError != nil {
		return LoginPayload{}, encodeError
	}
	return LoginPayload{body: encoded}, nil
}

func (payload LoginPayload) attributes() (map[string]json.RawMessage, bool) {
	if len(payload.body) == 0 {
		return nil, false
	}
	attributes := map[string]json.RawMessage{}
	if decodeError := json.Unmarshal(payload.body, &attributes); decodeError != nil || attributes == nil {
		return nil, false
	}
	return attributes, true
}

// SecureNotePayload holds the secure note settings.
type SecureNotePayload struct {
	body json.RawMessage
}

// Type implements Payload.
func (SecureNotePayload) Type() ItemType { return ItemTypeSecureNote }

// Raw implements Payload.
func (payload SecureNotePayload) Raw() json.RawMessage { return cloneRaw(payload.body) }

func (SecureNotePayload) attributeName() string { return attributeSecureNoteConstant }

// CardPayload holds payment card details.
type CardPayload struct {
	body json.RawMessage
}

// Type implements Payload.
func (CardPayload) Type() ItemType { return ItemTypeCard }

// Raw implements Payload.
func (payload CardPayload) Raw() json.RawMessage { return cloneRaw(payload.body) }

func (CardPayload) attributeName() string { return attributeCardConstant }

// IdentityPayload holds personal identity details.
type IdentityPayload struct {
	body json.RawMessage
}

// Type implements Payload.
func (IdentityPayload) Type() ItemType { return ItemTypeIdentity }

// Raw implements Payload.
func (payload IdentityPayload) Raw() json.RawMessage { return cloneRaw(payload.body) }

func (IdentityPayload) attributeName() string { return attributeIdentityConstant }

// IsImportableTOTPSecret reports whether the secret is base32 text or a recognized credential URI.
func IsImportableTOTPSecret(secret string) bool {
	trimmedSecret := strings.TrimSpace(secret)
	if base32SecretPattern.MatchString(trimmedSecret) {
		return true
	}
	for _, scheme := range recognizedTOTPSchemes {
		if strings.HasPrefix(trimmedSecret, scheme) {
			return true
		}
	}
	return false
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage{}, raw...)
}
