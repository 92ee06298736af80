package vault

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	attributeIdentifierConstant     = "id"
	attributeOrganizationConstant   = "organizationId"
	attributeCollectionsConstant    = "collectionIds"
	attributeFolderConstant         = "folderId"
	attributeTypeConstant           = "type"
	attributeNameConstant           = "name"
	attributeNotesConstant          = "notes"
	attributeFavoriteConstant       = "favorite"
	attributeFieldsConstant         = "fields"
	attributeRepromptConstant       = "reprompt"
	attributeLoginConstant          = "login"
	attributeSecureNoteConstant     = "secureNote"
	attributeCardConstant           = "card"
	attributeIdentityConstant       = "identity"
	loginTOTPAttributeConstant      = "totp"
	jsonNullLiteralConstant         = "null"
	itemNotObjectMessageConstant    = "vault item must be a JSON object"
	attributeDecodeTemplateConstant = "vault item attribute %s: %w"
	unsupportedTypeTemplateConstant = "unsupported vault item type %d"
	missingTypeMessageConstant      = "vault item type missing"
)

// ItemType is the numeric type tag carried by every vault item.
type ItemType int

// Item type tags.
const (
	ItemTypeLogin      ItemType = 1
	ItemTypeSecureNote ItemType = 2
	ItemTypeCard       ItemType = 3
	ItemTypeIdentity   ItemType = 4
)

var (
	errItemNotObject = errors.New(itemNotObjectMessageConstant)
	// ErrItemTypeMissing indicates an item without a type tag.
	ErrItemTypeMissing = errors.New(missingTypeMessageConstant)
)

// UnsupportedItemTypeError reports an item whose type tag matches none of the known payload kinds.
type UnsupportedItemTypeError struct {
	Type ItemType
}

// Error describes the unsupported type.
func (typeError UnsupportedItemTypeError) Error() string {
	return fmt.Sprintf(unsupportedTypeTemplateConstant, typeError.Type)
}

// Item is one vault record. Attributes the model does not interpret are retained verbatim.
type Item struct {
	attributes map[string]json.RawMessage
}

// NewItem decodes a single item from its JSON representation.
func NewItem(data []byte) (Item, error) {
	var item Item
	if decodeError := json.Unmarshal(data, &item); decodeError != nil {
		return Item{}, decodeError
	}
	return item, nil
}

// UnmarshalJSON decodes the item while keeping every attribute.
func (item *Item) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return errItemNotObject
	}
	attributes := map[string]json.RawMessage{}
	if decodeError := json.Unmarshal(trimmed, &attributes); decodeError != nil {
		return decodeError
	}
	item.attributes = attributes
	return nil
}

// MarshalJSON encodes all retained attributes with keys in sorted order.
func (item Item) MarshalJSON() ([]byte, error) {
	if item.attributes == nil {
		return []byte("{}"), nil
	}
	return MarshalCompact(item.attributes)
}

// ID returns the item identifier.
func (item Item) ID() string {
	return item.stringAttribute(attributeIdentifierConstant)
}

// Name returns the display name.
func (item Item) Name() string {
	return item.stringAttribute(attributeNameConstant)
}

// Notes returns the free-form notes, empty when absent.
func (item Item) Notes() string {
	return item.stringAttribute(attributeNotesConstant)
}

// Favorite reports whether the item is flagged as a favorite.
func (item Item) Favorite() bool {
	var favorite bool
	if decodeError := item.decodeAttribute(attributeFavoriteConstant, &favorite); decodeError != nil {
		return false
	}
	return favorite
}

// Reprompt returns the master-password reprompt flag.
func (item Item) Reprompt() int {
	var reprompt int
	if decodeError := item.decodeAttribute(attributeRepromptConstant, &reprompt); decodeError != nil {
		return 0
	}
	return reprompt
}

// OrganizationID returns the owning organization, empty for personal items.
func (item Item) OrganizationID() string {
	return item.stringAttribute(attributeOrganizationConstant)
}

// FolderID returns the folder assignment, empty when unfiled.
func (item Item) FolderID() string {
	return item.stringAttribute(attributeFolderConstant)
}

// CollectionIDs returns the collection memberships and whether the attribute is set to a non-null value.
func (item Item) CollectionIDs() ([]string, bool) {
	if !item.hasValue(attributeCollectionsConstant) {
		return nil, false
	}
	var collectionIdentifiers []string
	if decodeError := item.decodeAttribute(attributeCollectionsConstant, &collectionIdentifiers); decodeError != nil {
		return nil, true
	}
	return collectionIdentifiers, true
}

// Fields returns the raw custom field list, nil when absent or null.
func (item Item) Fields() json.RawMessage {
	if !item.hasValue(attributeFieldsConstant) {
		return nil
	}
	return append(json.RawMessage{}, item.attributes[attributeFieldsConstant]...)
}

// Type returns the item type tag.
func (item Item) Type() (ItemType, error) {
	if !item.hasValue(attributeTypeConstant) {
		return 0, ErrItemTypeMissing
	}
	var itemType ItemType
	if decodeError := item.decodeAttribute(attributeTypeConstant, &itemType); decodeError != nil {
		return 0, decodeError
	}
	return itemType, nil
}

// Payload returns the type-specific payload selected by the type tag.
func (item Item) Payload() (Payload, error) {
	itemType, typeError := item.Type()
	if typeError != nil {
		return nil, typeError
	}
	switch itemType {
	case ItemTypeLogin:
		return LoginPayload{body: item.rawAttribute(attributeLoginConstant)}, nil
	case ItemTypeSecureNote:
		return SecureNotePayload{body: item.rawAttribute(attributeSecureNoteConstant)}, nil
	case ItemTypeCard:
		return CardPayload{body: item.rawAttribute(attributeCardConstant)}, nil
	case ItemTypeIdentity:
		return IdentityPayload{body: item.rawAttribute(attributeIdentityConstant)}, nil
	default:
		return nil, UnsupportedItemTypeError{Type: itemType}
	}
}

// WithPayload returns a copy of the item carrying the supplied payload.
func (item Item) WithPayload(payload Payload) Item {
	return item.withAttribute(payload.attributeName(), payload.Raw())
}

// WithEmptyCollections returns a copy whose collection membership is an empty list.
func (item Item) WithEmptyCollections() Item {
	return item.withAttribute(attributeCollectionsConstant, json.RawMessage("[]"))
}

func (item Item) withAttribute(name string, value json.RawMessage) Item {
	duplicated := make(map[string]json.RawMessage, len(item.attributes)+1)
	for attributeName, attributeValue := range item.attributes {
		duplicated[attributeName] = attributeValue
	}
	duplicated[name] = append(json.RawMessage{}, value...)
	return Item{attributes: duplicated}
}

func (item Item) rawAttribute(name string) json.RawMessage {
	if !item.hasValue(name) {
		return nil
	}
	return append(json.RawMessage{}, item.attributes[name]...)
}

func (item Item) hasValue(name string) bool {
	value, present := item.attributes[name]
	if !present {
		return false
	}
	return strings.TrimSpace(string(value)) != jsonNullLiteralConstant
}

func (item Item) stringAttribute(name string) string {
	var value string
	if decodeError := item.decodeAttribute(name, &value); decodeError != nil {
		return ""
	}
	return value
}

func (item Item) decodeAttribute(name string, target any) error {
	if !item.hasValue(name) {
		return nil
	}
	if decodeError := json.Unmarshal(item.attributes[name], target); decodeError != nil {
		return fmt.Errorf(attributeDecodeTemplateConstant, name, decodeError)
	}
	return nil
}

// ItemReference is the minimal projection returned when listing items.
type ItemReference struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MarshalCompact encodes the value as compact JSON without HTML escaping and without a trailing newline.
func MarshalCompact(value any) ([]byte, error) {
	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	encoder.SetEscapeHTML(false)
	if encodeError := encoder.Encode(value); encodeError != nil {
		return nil, encodeError
	}
	return bytes.TrimRight(buffer.Bytes(), "\n"), nil
}
