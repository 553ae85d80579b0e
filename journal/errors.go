package journal

import "errors"

var (
	ErrInvalidIdentity = errors.New("journal: invalid identity")
	ErrNotOwner        = errors.New("journal: signer does not own this journal")
	ErrBadEnvelope     = errors.New("journal: bad publish envelope")
	ErrIntegrity       = errors.New("journal: integrity check failed")
	ErrClosed          = errors.New("journal: subscription closed")
)

func IsNotOwner(err error) bool { return errors.Is(err, ErrNotOwner) }

func IsIntegrity(err error) bool { return errors.Is(err, ErrIntegrity) }
