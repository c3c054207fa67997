package repo

import (
	"errors"

	"github.com/lib/pq"
)

// uniqueViolation identifica violação de constraint de unicidade (23505).
// Com constraint vazia, casa qualquer uma.
func uniqueViolation(err error, constraint string) bool {
	var pqe *pq.Error
	if !errors.As(err, &pqe) {
		return false
	}
	if pqe.Code != "23505" {
		return false
	}
	return constraint == "" || pqe.Constraint == constraint
}
