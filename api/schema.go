package api

// ReplaySchema selects the wire shape of the decision batch returned to the host.
type ReplaySchema int

const (
	// ReplaySchemaV1 flattens the children of WhenAll/WhenAny into the batch.
	ReplaySchemaV1 ReplaySchema = 0
	// ReplaySchemaV2 emits a single compound action that nests its children.
	ReplaySchemaV2 ReplaySchema = 1
)

// Min returns the lower of the two schema versions.
func (s ReplaySchema) Min(other ReplaySchema) ReplaySchema {
	if other < s {
		return other
	}
	return s
}
