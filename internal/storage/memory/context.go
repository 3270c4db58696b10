package memory

import "context"

type trxKey struct{}

func withTransaction(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, trxKey{}, id)
}

func transactionFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(trxKey{}).(int64)

	return id, ok
}
