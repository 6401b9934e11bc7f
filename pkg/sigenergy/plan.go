package sigenergy

import "fmt"

// ReadBatch is one wire read covering one or more catalog registers whose
// addresses are contiguous within the same table.
type ReadBatch struct {
	Table   Table
	Address uint16
	Words   uint16
	Specs   []RegisterSpec
}

// maxBatchWords keeps every batch below the Modbus read quantity limit.
const maxBatchWords = 120

// PlanReads groups readable specs into as few wire reads as possible.
// Specs must be in the stable order produced by RegistersFor; registers with
// gaps between them, different tables, or batches that would exceed the word
// limit start a new batch.
func PlanReads(specs []RegisterSpec) []ReadBatch {
	var plan []ReadBatch
	for _, spec := range specs {
		if !spec.Readable() {
			continue
		}
		n := len(plan)
		if n > 0 {
			last := &plan[n-1]
			if last.Table == spec.Table &&
				last.Address+last.Words == spec.Address &&
				last.Words+spec.Words <= maxBatchWords {
				last.Words += spec.Words
				last.Specs = append(last.Specs, spec)
				continue
			}
		}
		plan = append(plan, ReadBatch{
			Table:   spec.Table,
			Address: spec.Address,
			Words:   spec.Words,
			Specs:   []RegisterSpec{spec},
		})
	}
	return plan
}

// DecodeBatch splits one batch read result back into per-register values.
func DecodeBatch(batch ReadBatch, words []uint16) (map[string]Value, error) {
	if uint16(len(words)) != batch.Words {
		return nil, fmt.Errorf("%w: batch at %d: got %d words, want %d",
			ErrMalformed, batch.Address, len(words), batch.Words)
	}
	out := make(map[string]Value, len(batch.Specs))
	for _, spec := range batch.Specs {
		offset := spec.Address - batch.Address
		v, err := Decode(spec, words[offset:offset+spec.Words])
		if err != nil {
			return nil, err
		}
		out[spec.Name] = v
	}
	return out, nil
}
