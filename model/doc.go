// Package model defines the record types shared by every vecmem package.
//
// # Identity
//
// Records are addressed by a string ID that is unique within a collection.
// Callers may supply their own IDs; NewID generates one otherwise.
//
// # Data Types
//
//   - Record: vector with metadata and an optional text payload
//   - Match: a scored search hit carrying a copy of the stored record
//
// # Tenant Keys
//
// The metadata keys KeyUserID and KeyConversationID are reserved. They carry
// tenant identity and are written by tenant-scoped handles.
package model
