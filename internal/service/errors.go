package service

import (
	"go.uber.org/zap"

	"github.com/iliyamo/library-reservation/internal/apperr"
	"github.com/iliyamo/library-reservation/internal/policy"
)

// fail classifies err for op and logs it according to its kind. Client
// errors are not logged except denials, which are kept at info with the
// policy reason so access problems can be traced.
func fail(log *zap.Logger, op policy.Operation, p policy.Principal, err error, fields ...zap.Field) error {
	err = apperr.Classify(string(op), err)
	fields = append(fields, zap.String("op", string(op)), zap.Uint64("principal_id", p.ID))
	switch apperr.KindOf(err) {
	case apperr.KindInternal:
		log.Error("operation failed", append(fields, zap.Error(err))...)
	case apperr.KindUnavailable:
		log.Warn("storage unavailable", append(fields, zap.Error(err))...)
	case apperr.KindForbidden:
		log.Info("access denied", append(fields, zap.String("reason", apperr.PublicMessage(err)))...)
	}
	return err
}

func hasRole(roles []string, name string) bool {
	for _, r := range roles {
		if r == name {
			return true
		}
	}
	return false
}
