package handler

import (
	"strings"

	dErrors "claimgate/pkg/domain-errors"
)

const maxSliceKeys = 64

// SaveSliceRequest is the body of PATCH /wizard/slices/{slice}.
type SaveSliceRequest struct {
	Values map[string]any `json:"values" validate:"required"`
}

func (r *SaveSliceRequest) Validate() error {
	if len(r.Values) == 0 {
		return dErrors.New(dErrors.CodeValidation, "values must not be empty")
	}
	if len(r.Values) > maxSliceKeys {
		return dErrors.New(dErrors.CodeValidation, "too many values in one save")
	}
	for key := range r.Values {
		if strings.TrimSpace(key) == "" {
			return dErrors.New(dErrors.CodeValidation, "value names must not be blank")
		}
	}
	return nil
}

// ReceiptTypeRequest is the body of PUT /wizard/receipt-type.
type ReceiptTypeRequest struct {
	ReceiptType string `json:"receipt_type" validate:"required"`
}

func (r *ReceiptTypeRequest) Validate() error {
	r.ReceiptType = strings.TrimSpace(r.ReceiptType)
	return nil
}

// KeyPressRequest is the body of POST /wizard/inputs/{field}/press.
type KeyPressRequest struct {
	Key string `json:"key" validate:"required,len=1"`
}
