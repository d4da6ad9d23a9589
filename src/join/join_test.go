package join

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var probes = []string{"bootstrap", "upstream", "rpcCheck", "dnsBind", "netIf", "publicIP"}

func permutations(names []string) [][]string {
	if len(names) <= 1 {
		return [][]string{append([]string(nil), names...)}
	}
	var out [][]string
	for i := range names {
		rest := make([]string, 0, len(names)-1)
		rest = append(rest, names[:i]...)
		rest = append(rest, names[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([]string{names[i]}, p...))
		}
	}
	return out
}

func TestBarrier_FiresOnceInEveryOrder(t *testing.T) {
	orders := permutations(probes)
	require.Len(t, orders, 720)
	for _, order := range orders {
		fired := 0
		b := NewBarrier(func() { fired++ }, probes...)
		for i, name := range order {
			ran := b.Done(name)
			require.Equal(t, i == len(order)-1, ran, "order %v step %d", order, i)
			// a duplicate delivered in the same tick never fires again
			require.False(t, b.Done(name))
		}
		require.Equal(t, 1, fired, "order %v", order)
		require.True(t, b.Fired())
		require.Empty(t, b.Pending())
	}
}

func TestBarrier_ClientProfileIgnoresOptional(t *testing.T) {
	fired := 0
	b := NewBarrier(func() { fired++ }, "bootstrap", "upstream", "rpcCheck", "dnsBind")
	b.Add("netIf", false)

	require.False(t, b.Done("netIf"))
	require.Equal(t, []string{"bootstrap", "upstream", "rpcCheck", "dnsBind"}, b.Pending())
	for _, name := range []string{"dnsBind", "bootstrap", "upstream"} {
		require.False(t, b.Done(name))
	}
	require.True(t, b.Done("rpcCheck"))

	// late completions after firing
	require.False(t, b.Done("publicIP"))
	require.False(t, b.Done("bootstrap"))
	require.Equal(t, 1, fired)
}

func TestBarrier_Cancel(t *testing.T) {
	fired := 0
	b := NewBarrier(func() { fired++ }, "a", "b")
	require.False(t, b.Done("a"))
	b.Cancel()
	require.False(t, b.Done("b"))
	require.Equal(t, 0, fired)
	require.False(t, b.Fired())
	require.True(t, b.Cancelled())
}

func TestBarrier_AddUpgradesToRequired(t *testing.T) {
	fired := 0
	b := NewBarrier(func() { fired++ }, "a")
	b.Add("b", false)
	b.Add("b", true)
	require.False(t, b.Done("a"))
	require.True(t, b.Done("b"))
	require.Equal(t, 1, fired)

	tasks := b.Tasks()
	require.Len(t, tasks, 2)
	require.Equal(t, Task{Name: "b", Required: true, Done: true}, tasks[1])
}
