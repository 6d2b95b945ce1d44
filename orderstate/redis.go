package orderstate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func orderKey(name string) string {
	return fmt.Sprintf("fleetkernel:order:%s", name)
}

func vehicleKey(vehicle string) string {
	return fmt.Sprintf("fleetkernel:vehicle:%s:order", vehicle)
}

const (
	allOrdersKey    = "fleetkernel:orders"
	activeOrdersKey = "fleetkernel:orders:active"
)

// PutOrder stores the order view and maintains the order index, the active
// set and the per-vehicle current order.
func (r *RedisStore) PutOrder(ctx context.Context, st *OrderState, previousVehicle string) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, orderKey(st.Name), data, 0)
	pipe.SAdd(ctx, allOrdersKey, st.Name)
	if st.State.IsFinal() {
		pipe.SRem(ctx, activeOrdersKey, st.Name)
	} else {
		pipe.SAdd(ctx, activeOrdersKey, st.Name)
	}
	if previousVehicle != "" && previousVehicle != st.ProcessingVehicle {
		clearVehicle(ctx, pipe, previousVehicle, st.Name)
	}
	if st.ProcessingVehicle != "" {
		if st.State.IsFinal() {
			clearVehicle(ctx, pipe, st.ProcessingVehicle, st.Name)
		} else {
			pipe.Set(ctx, vehicleKey(st.ProcessingVehicle), st.Name, 0)
		}
	}
	_, err = pipe.Exec(ctx)
	return err
}

// clearIfHolds deletes the vehicle's current-order key only while it still
// names the given order.
const clearIfHolds = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

func clearVehicle(ctx context.Context, pipe redis.Pipeliner, vehicle, name string) {
	pipe.Eval(ctx, clearIfHolds, []string{vehicleKey(vehicle)}, name)
}

func (r *RedisStore) GetOrder(ctx context.Context, name string) (*OrderState, error) {
	data, err := r.client.Get(ctx, orderKey(name)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var st OrderState
	return &st, json.Unmarshal(data, &st)
}

// VehicleOrder returns the order a vehicle is processing, or "" when idle.
func (r *RedisStore) VehicleOrder(ctx context.Context, vehicle string) (string, error) {
	name, err := r.client.Get(ctx, vehicleKey(vehicle)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return name, err
}

func (r *RedisStore) ActiveOrderNames(ctx context.Context) ([]string, error) {
	return r.client.SMembers(ctx, activeOrdersKey).Result()
}

func (r *RedisStore) AllOrderNames(ctx context.Context) ([]string, error) {
	return r.client.SMembers(ctx, allOrdersKey).Result()
}

func (r *RedisStore) RemoveOrder(ctx context.Context, name, vehicle string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, orderKey(name))
	pipe.SRem(ctx, allOrdersKey, name)
	pipe.SRem(ctx, activeOrdersKey, name)
	if vehicle != "" {
		clearVehicle(ctx, pipe, vehicle, name)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// FlushAll removes every key this store owns.
func (r *RedisStore) FlushAll(ctx context.Context) error {
	names, err := r.AllOrderNames(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := r.client.Del(ctx, orderKey(name)).Err(); err != nil {
			return err
		}
	}
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, "fleetkernel:vehicle:*", 100).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	return r.client.Del(ctx, allOrdersKey, activeOrdersKey).Err()
}
