package itemcopy

import (
	"encoding/json"

	"github.com/temirov/vaultsync/internal/vault"
)

// CreatePayload is the item body submitted to the target account.
type CreatePayload struct {
	OrganizationID *string         `json:"organizationId"`
	CollectionIDs  []string        `json:"collectionIds"`
	FolderID       *string         `json:"folderId"`
	Type           vault.ItemType  `json:"type"`
	Name           string          `json:"name"`
	Notes          *string         `json:"notes"`
	Favorite       bool            `json:"favorite"`
	Fields         json.RawMessage `json:"fields"`
	Login          json.RawMessage `json:"login"`
	SecureNote     json.RawMessage `json:"secureNote"`
	Card           json.RawMessage `json:"card"`
	Identity       json.RawMessage `json:"identity"`
	Reprompt       int             `json:"reprompt"`
}

var (
	emptyListLiteral = json.RawMessage("[]")
	nullLiteral      = json.RawMessage("null")
)

// NewCreatePayload builds the creation body for the item. Source organization, collection and
// folder assignments are never carried over. An empty targetOrganizationID creates a personal item.
func NewCreatePayload(item vault.Item, targetOrganizationID string) (CreatePayload, error) {
	payload, payloadError := item.Payload()
	if payloadError != nil {
		return CreatePayload{}, payloadError
	}

	createPayload := CreatePayload{
		Type:       payload.Type(),
		Name:       item.Name(),
		Favorite:   item.Favorite(),
		Fields:     emptyListLiteral,
		Login:      nullLiteral,
		SecureNote: nullLiteral,
		Card:       nullLiteral,
		Identity:   nullLiteral,
		Reprompt:   item.Reprompt(),
	}
	if len(targetOrganizationID) > 0 {
		organizationID := targetOrganizationID
		createPayload.OrganizationID = &organizationID
		createPayload.CollectionIDs = []string{}
	}
	if notes := item.Notes(); len(notes) > 0 {
		createPayload.Notes = &notes
	}
	if fields := item.Fields(); len(fields) > 0 {
		createPayload.Fields = fields
	}

	body := payload.Raw()
	if len(body) == 0 {
		body = nullLiteral
	}
	switch payload.(type) {
	case vault.LoginPayload:
		createPayload.Login = body
	case vault.SecureNotePayload:
		createPayload.SecureNote = body
	case vault.CardPayload:
		createPayload.Card = body
	case vault.IdentityPayload:
		createPayload.Identity = body
	}
	return createPayload, nil
}
