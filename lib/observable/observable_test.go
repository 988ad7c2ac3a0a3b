package observable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFireDeliversInRegistrationOrder(t *testing.T) {
	t.Parallel()
	o := New[int]()

	var order []string
	o.Subscribe(func(int) { order = append(order, "a") })
	o.Subscribe(func(int) { order = append(order, "b") })
	o.Subscribe(func(int) { order = append(order, "c") })

	o.Fire(1)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()
	o := New[string]()

	var got []string
	unsub := o.Subscribe(func(v string) { got = append(got, v) })

	o.Fire("one")
	unsub()
	o.Fire("two")

	assert.Equal(t, []string{"one"}, got)
	assert.Equal(t, 0, o.Len())
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	t.Parallel()
	o := New[int]()

	calls := 0
	o.Subscribe(func(int) { calls++ })
	unsub := o.Subscribe(func(int) { calls++ })

	unsub()
	unsub()
	unsub()

	o.Fire(1)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, o.Len())
}

func TestSubscribeDuringFireNotInvokedBySameFire(t *testing.T) {
	t.Parallel()
	o := New[int]()

	lateCalls := 0
	o.Subscribe(func(int) {
		o.Subscribe(func(int) { lateCalls++ })
	})

	o.Fire(1)
	assert.Equal(t, 0, lateCalls)

	o.Fire(2)
	assert.Equal(t, 1, lateCalls)
}

func TestUnsubscribeDuringFireSkipsRemovedHandler(t *testing.T) {
	t.Parallel()
	o := New[int]()

	var unsubB UnsubscribeFunc
	bCalls := 0
	o.Subscribe(func(int) { unsubB() })
	unsubB = o.Subscribe(func(int) { bCalls++ })

	o.Fire(1)
	assert.Equal(t, 0, bCalls)
}

func TestRemoveAllDropsWithoutInvoking(t *testing.T) {
	t.Parallel()
	o := New[int]()

	calls := 0
	o.Subscribe(func(int) { calls++ })
	o.Subscribe(func(int) { calls++ })
	require.Equal(t, 2, o.Len())

	o.RemoveAll()
	o.Fire(1)

	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, o.Len())
}

func TestRemoveAllDuringFireStopsRemainingHandlers(t *testing.T) {
	t.Parallel()
	o := New[int]()

	second := 0
	o.Subscribe(func(int) { o.RemoveAll() })
	o.Subscribe(func(int) { second++ })

	o.Fire(1)
	assert.Equal(t, 0, second)
}
