package identity

import "context"

// Anonymous résout tout token en viewer anonyme (pas de clé publique en local)
type Anonymous struct{}

func (Anonymous) Resolve(context.Context, string) (string, error) { return "", nil }
