package models

// Catalog maps a reference type to the ordered task types it requires.
// It is built once and never mutated.
type Catalog struct {
	types map[ReferenceType][]TaskType
}

// NewCatalog copies the given mapping into an immutable catalog.
func NewCatalog(m map[ReferenceType][]TaskType) *Catalog {
	types := make(map[ReferenceType][]TaskType, len(m))
	for ref, tts := range m {
		types[ref] = append([]TaskType(nil), tts...)
	}
	return &Catalog{types: types}
}

// DefaultCatalog returns the catalog used by the service.
func DefaultCatalog() *Catalog {
	return NewCatalog(map[ReferenceType][]TaskType{
		ReferenceTypeOrder: {
			TaskTypeCreateInvoice,
			TaskTypeArrangePickup,
			TaskTypeCollectPayment,
		},
		ReferenceTypeEntity: {
			TaskTypeAssignCustomerToSalesPerson,
		},
	})
}

// ApplicableTaskTypes returns the task types required by ref, in order.
// Unknown reference types yield an empty result.
func (c *Catalog) ApplicableTaskTypes(ref ReferenceType) []TaskType {
	return append([]TaskType(nil), c.types[ref]...)
}

// Supports reports whether taskType is generated for ref.
func (c *Catalog) Supports(ref ReferenceType, taskType TaskType) bool {
	for _, tt := range c.types[ref] {
		if tt == taskType {
			return true
		}
	}
	return false
}
