package wizard

import (
	"maps"

	dErrors "claimgate/pkg/domain-errors"
)

// SliceName identifies one partition of the accumulated form state.
type SliceName string

const (
	SliceClaim   SliceName = "claim"
	SliceInsured SliceName = "insured"
	SliceType    SliceName = "type"
	SliceAccept  SliceName = "accept"
)

// Slices lists the partitions in payload merge order.
var Slices = []SliceName{SliceClaim, SliceInsured, SliceType, SliceAccept}

func ParseSliceName(s string) (SliceName, error) {
	for _, name := range Slices {
		if string(name) == s {
			return name, nil
		}
	}
	return "", dErrors.New(dErrors.CodeNotFound, "unknown slice: "+s)
}

// ReceiptType says who the claim is filed for.
type ReceiptType string

const (
	ReceiptSelf       ReceiptType = "self"
	ReceiptMinorChild ReceiptType = "minorChild"
)

func ParseReceiptType(s string) (ReceiptType, error) {
	switch ReceiptType(s) {
	case ReceiptSelf, ReceiptMinorChild:
		return ReceiptType(s), nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "receipt type must be self or minorChild")
}

// Slice is a flat key-value bag. Saves merge into it; they never replace it.
type Slice map[string]any

func (s Slice) clone() Slice {
	out := make(Slice, len(s))
	maps.Copy(out, s)
	return out
}

// Contract is one eligible contract as returned by the backend. The shape is
// owned by the backend and passed through untouched.
type Contract map[string]any

// Snapshot is a copy of the whole store.
type Snapshot struct {
	Slices       map[SliceName]Slice `json:"slices"`
	ReceiptType  ReceiptType         `json:"receipt_type,omitempty"`
	UserName     string              `json:"user_name,omitempty"`
	ContractList []Contract          `json:"contract_list,omitempty"`
	HasContracts bool                `json:"has_contracts"`
}

// Storage keys, one per persisted field.
const (
	keyReceiptType  = "receiptType"
	keyUserName     = "userName"
	keyContractList = "contractList"
)
