package portrange

import (
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompactExample(t *testing.T) {
	expr, err := Compact([]int{8, 1, 3, 2, 5, 7})
	require.NoError(t, err)
	assert.Equal(t, "1-3,5,7-8", expr)
}

func TestCompactSingleton(t *testing.T) {
	expr, err := Compact([]int{42})
	require.NoError(t, err)
	assert.Equal(t, "42", expr)
	assert.NotContains(t, expr, "-", "单元素集合不应产生范围符号")
}

func TestCompactDuplicatesAndSparse(t *testing.T) {
	expr, err := Compact([]int{4, 4, 2, 2, 10})
	require.NoError(t, err)
	assert.Equal(t, "2,4,10", expr)

	var sparse []int
	for i := 1; i <= 99; i += 2 {
		sparse = append(sparse, i)
	}
	expr, err = Compact(sparse)
	require.NoError(t, err)
	assert.Len(t, strings.Split(expr, ","), 50)
	assert.NotContains(t, expr, "-")
}

func TestCompactRejectsInvalidInput(t *testing.T) {
	_, err := Compact(nil)
	assert.ErrorIs(t, err, ErrEmptySet)

	_, err = Compact([]int{3, 0, 1})
	assert.ErrorIs(t, err, ErrInvalidID)

	_, err = Compact([]int{-2})
	assert.ErrorIs(t, err, ErrInvalidID)
}

// 任意正整数集合：Expand(Compact(S)) 恰好等于 S
func TestCompactPartitionsRandomSets(t *testing.T) {
	rng := rand.New(rand.NewSource(20261019))
	for round := 0; round < 500; round++ {
		size := 1 + rng.Intn(60)
		set := make(map[int]struct{}, size)
		input := make([]int, 0, size)
		for i := 0; i < size; i++ {
			n := 1 + rng.Intn(120)
			input = append(input, n)
			set[n] = struct{}{}
		}

		expr, err := Compact(input)
		require.NoError(t, err)

		got, err := Expand(expr)
		require.NoError(t, err)

		want := make([]int, 0, len(set))
		for n := range set {
			want = append(want, n)
		}
		sort.Ints(want)
		assert.Equal(t, want, got, "表达式 %s 未能精确覆盖输入集合", expr)

		// 各 token 之间不得重叠
		total := 0
		for _, tok := range strings.Split(expr, ",") {
			lo, hi, err := parseToken(tok)
			require.NoError(t, err)
			total += hi - lo + 1
		}
		assert.Equal(t, len(set), total)
	}
}

func TestExpandRejectsMalformed(t *testing.T) {
	for _, expr := range []string{"", "a", "3-1", "0", "1,,2", "-4"} {
		_, err := Expand(expr)
		assert.Error(t, err, "表达式 %q 应当被拒绝", expr)
	}
}

func TestExpandBounded(t *testing.T) {
	got, err := Expand(fmt.Sprintf("1-%d", MaxExpand))
	require.NoError(t, err)
	assert.Len(t, got, MaxExpand)

	for _, expr := range []string{
		"1-20000000",
		fmt.Sprintf("1-%d", MaxExpand+1),
		fmt.Sprintf("1-%d,%d-%d", MaxExpand/2, MaxExpand, MaxExpand+MaxExpand/2),
	} {
		_, err := Expand(expr)
		assert.ErrorIs(t, err, ErrBadRange, expr)
	}

	// 重叠部分只计一次
	got, err = Expand(fmt.Sprintf("1-%d,1-%d", MaxExpand, MaxExpand))
	require.NoError(t, err)
	assert.Len(t, got, MaxExpand)
}

func TestInterfaceRanges(t *testing.T) {
	expr, err := InterfaceRanges([]string{
		"Gi1/0/3", "GigabitEthernet1/0/1", "Gi1/0/2", "Gi1/0/5", "Gi2/0/1", "gi1/0/2",
	})
	require.NoError(t, err)
	assert.Equal(t, "Gi1/0/1-3,Gi1/0/5,Gi2/0/1", expr)

	expr, err = InterfaceRanges([]string{"Gi1/0/9"})
	require.NoError(t, err)
	assert.Equal(t, "Gi1/0/9", expr)

	_, err = InterfaceRanges(nil)
	assert.ErrorIs(t, err, ErrEmptySet)
}

func TestBatches(t *testing.T) {
	var ids []string
	for i := 30; i >= 1; i-- {
		ids = append(ids, "Gi1/0/"+strconv.Itoa(i))
	}
	ids = append(ids, "Gi1/0/1")

	batches := Batches(ids, MaxBatchSize)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 12)
	assert.Len(t, batches[1], 12)
	assert.Len(t, batches[2], 6)
	assert.Equal(t, "Gi1/0/1", batches[0][0])
	assert.Equal(t, "Gi1/0/30", batches[2][5])

	assert.Empty(t, Batches(nil, 0))
}
