// Package vault models vault items exchanged with the vault CLI.
//
// Item is a tagged variant: the numeric type tag selects exactly one of the
// LoginPayload, SecureNotePayload, CardPayload or IdentityPayload kinds, and
// callers switch over Payload to handle each kind. Attributes the model does not
// interpret survive decoding and re-encoding unchanged.
package vault
