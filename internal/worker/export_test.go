package worker

import "context"

func (r *RedisReclaimer) ReclaimOnce(ctx context.Context) error {
	return r.reclaimOnce(ctx)
}
