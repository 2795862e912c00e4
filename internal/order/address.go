package order

import "encoding/json"

// marshalAddress/unmarshalAddress store Address as jsonb, matching the
// billing_address/shipping_address columns in migrations/0001_core_schema.sql.
func marshalAddress(a *Address) ([]byte, error) {
	return json.Marshal(a)
}

func unmarshalAddress(b []byte) (*Address, error) {
	var a Address
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, err
	}
	return &a, nil
}
