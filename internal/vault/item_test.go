package vault_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/vaultsync/internal/vault"
)

const (
	testLoginItemConstant = `{"id":"a1","type":1,"name":"Mail & Calendar","notes":null,"favorite":true,"collectionIds":["c1"],"login":{"username":"alice","totp":"not a secret!","uris":[{"uri":"https://mail.example"}]},"passwordHistory":[{"password":"old"}]}`
	testCardItemConstant  = `{"id":"c9","type":3,"name":"Visa","card":{"brand":"Visa","number":"4111"}}`
)

func TestItemRetainsUninterpretedAttributes(testInstance *testing.T) {
	item, decodeError := vault.NewItem([]byte(testLoginItemConstant))
	require.NoError(testInstance, decodeError)

	require.Equal(testInstance, "a1", item.ID())
	require.Equal(testInstance, "Mail & Calendar", item.Name())
	require.Empty(testInstance, item.Notes())
	require.True(testInstance, item.Favorite())

	collectionIdentifiers, collectionsSet := item.CollectionIDs()
	require.True(testInstance, collectionsSet)
	require.Equal(testInstance, []string{"c1"}, collectionIdentifiers)

	encoded, encodeError := json.Marshal(item)
	require.NoError(testInstance, encodeError)
	require.JSONEq(testInstance, testLoginItemConstant, string(encoded))
}

func TestItemPayloadSelectsKindByTypeTag(testInstance *testing.T) {
	testCases := []struct {
		name         string
		document     string
		expectedType vault.ItemType
		expectError  any
	}{
		{name: "login", document: testLoginItemConstant, expectedType: vault.ItemTypeLogin},
		{name: "card", document: testCardItemConstant, expectedType: vault.ItemTypeCard},
		{name: "secure_note", document: `{"type":2,"secureNote":{"type":0}}`, expectedType: vault.ItemTypeSecureNote},
		{name: "identity", document: `{"type":4,"identity":{"firstName":"Ada"}}`, expectedType: vault.ItemTypeIdentity},
		{name: "unsupported", document: `{"type":5,"sshKey":{}}`, expectError: vault.UnsupportedItemTypeError{}},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			item, decodeError := vault.NewItem([]byte(testCase.document))
			require.NoError(testInstance, decodeError)

			payload, payloadError := item.Payload()
			if testCase.expectError != nil {
				require.Error(testInstance, payloadError)
				require.IsType(testInstance, testCase.expectError, payloadError)
				return
			}
			require.NoError(testInstance, payloadError)
			require.Equal(testInstance, testCase.expectedType, payload.Type())
		})
	}
}

func TestItemWithoutTypeTagIsRejected(testInstance *testing.T) {
	item, decodeError := vault.NewItem([]byte(`{"id":"x"}`))
	require.NoError(testInstance, decodeError)

	_, payloadError := item.Payload()
	require.ErrorIs(testInstance, payloadError, vault.ErrItemTypeMissing)
}

func TestNewItemRejectsNonObjects(testInstance *testing.T) {
	_, decodeError := vault.NewItem([]byte(`["not","an","item"]`))
	require.Error(testInstance, decodeError)
}

func TestLoginPayloadWithoutTOTPKeepsOtherAttributes(testInstance *testing.T) {
	item, decodeError := vault.NewItem([]byte(testLoginItemConstant))
	require.NoError(testInstance, decodeError)

	payload, payloadError := item.Payload()
	require.NoError(testInstance, payloadError)

	loginPayload, isLogin := payload.(vault.LoginPayload)
	require.True(testInstance, isLogin)

	secret, secretPresent := loginPayload.TOTP()
	require.True(testInstance, secretPresent)
	require.Equal(testInstance, "not a secret!", secret)

	strippedPayload, stripError := loginPayload.WithoutTOTP()
	require.NoError(testInstance, stripError)
	_, stillPresent := strippedPayload.TOTP()
	require.False(testInstance, stillPresent)
	require.JSONEq(testInstance, `{"username":"alice","uris":[{"uri":"https://mail.example"}]}`, string(strippedPayload.Raw()))

	updatedItem := item.WithPayload(strippedPayload)
	originalSecret, originalPresent := loginPayload.TOTP()
	require.True(testInstance, originalPresent)
	require.Equal(testInstance, "not a secret!", originalSecret)
	require.Equal(testInstance, item.Name(), updatedItem.Name())
}

func TestLoginPayloadTreatsNonStringTOTPAsAbsent(testInstance *testing.T) {
	testCases := []struct {
		name string
		item string
	}{
		{name: "null_totp", item: `{"id":"a5","type":1,"login":{"username":"dave","totp":null}}`},
		{name: "numeric_totp", item: `{"id":"a6","type":1,"login":{"username":"erin","totp":123456}}`},
		{name: "missing_totp", item: `{"id":"a7","type":1,"login":{"username":"frank"}}`},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			item, decodeError := vault.NewItem([]byte(testCase.item))
			require.NoError(testInstance, decodeError)
			payload, payloadError := item.Payload()
			require.NoError(testInstance, payloadError)

			_, secretPresent := payload.(vault.LoginPayload).TOTP()
			require.False(testInstance, secretPresent)
		})
	}
}

func TestIsImportableTOTPSecret(testInstance *testing.T) {
	testCases := []struct {
		secret     string
		importable bool
	}{
		{secret: "JBSWY3DPEHPK3PXP", importable: true},
		{secret: "jbswy3dpehpk3pxp", importable: true},
		{secret: "  JBSWY3DP====  ", importable: true},
		{secret: "otpauth://totp/Example:alice?secret=JBSWY3DPEHPK3PXP", importable: true},
		{secret: "steam://JBSWY3DP", importable: true},
		{secret: "JBSW Y3DP", importable: false},
		{secret: "12345678", importable: false},
		{secret: "", importable: false},
		{secret: "https://example.com", importable: false},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.secret, func(testInstance *testing.T) {
			require.Equal(testInstance, testCase.importable, vault.IsImportableTOTPSecret(testCase.secret))
		})
	}
}
