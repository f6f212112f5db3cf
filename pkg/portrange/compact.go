package portrange

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/swappnet/swapp/internal/model"
)

// Delimiter 设备 range 语法的分隔符
const Delimiter = ","

// MaxBatchSize 单条 interface range 命令允许的最大接口数
const MaxBatchSize = 12

// MaxExpand 单个范围表达式最多展开的编号数
const MaxExpand = 4096

var (
	ErrEmptySet  = errors.New("portrange: empty identifier set")
	ErrInvalidID = errors.New("portrange: identifiers must be positive")
	ErrBadRange  = errors.New("portrange: malformed range expression")
)

// Compact 将正整数集合压缩为范围表达式：{1,2,3,5,7,8} -> "1-3,5,7-8"
// 输入按集合处理（去重），空集或非正数返回错误
func Compact(ids []int) (string, error) {
	if len(ids) == 0 {
		return "", ErrEmptySet
	}
	sorted := make([]int, len(ids))
	copy(sorted, ids)
	sort.Ints(sorted)
	if sorted[0] <= 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidID, sorted[0])
	}

	tokens := make([]string, 0, len(sorted))
	start, prev := sorted[0], sorted[0]
	flush := func() {
		if start == prev {
			tokens = append(tokens, strconv.Itoa(start))
		} else {
			tokens = append(tokens, strconv.Itoa(start)+"-"+strconv.Itoa(prev))
		}
	}
	for _, n := range sorted[1:] {
		switch {
		case n == prev:
			continue
		case n == prev+1:
			prev = n
		default:
			flush()
			start, prev = n, n
		}
	}
	flush()
	return strings.Join(tokens, Delimiter), nil
}

// Expand 将范围表达式展开为升序整数列表；展开结果超过 MaxExpand 时返回 ErrBadRange
func Expand(expr string) ([]int, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, ErrEmptySet
	}
	seen := make(map[int]struct{})
	var out []int
	for _, tok := range strings.Split(expr, Delimiter) {
		tok = strings.TrimSpace(tok)
		lo, hi, err := parseToken(tok)
		if err != nil {
			return nil, err
		}
		if hi-lo+1 > MaxExpand {
			return nil, fmt.Errorf("%w: %q expands past %d ids", ErrBadRange, tok, MaxExpand)
		}
		for n := lo; n <= hi; n++ {
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			out = append(out, n)
		}
		if len(out) > MaxExpand {
			return nil, fmt.Errorf("%w: %q expands past %d ids", ErrBadRange, expr, MaxExpand)
		}
	}
	sort.Ints(out)
	return out, nil
}

func parseToken(tok string) (int, int, error) {
	parts := strings.SplitN(tok, "-", 2)
	lo, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || lo <= 0 {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadRange, tok)
	}
	if len(parts) == 1 {
		return lo, lo, nil
	}
	hi, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || hi < lo {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadRange, tok)
	}
	return lo, hi, nil
}

// InterfaceRanges 按槽位前缀分组并压缩接口名：
// [Gi1/0/1 Gi1/0/2 Gi1/0/3 Gi1/0/5 Gi2/0/1] -> "Gi1/0/1-3,Gi1/0/5,Gi2/0/1"
// 无编号的接口原样保留
func InterfaceRanges(ids []string) (string, error) {
	if len(ids) == 0 {
		return "", ErrEmptySet
	}
	groups := make(map[string][]int)
	var order []string
	var verbatim []string
	for _, raw := range ids {
		id := model.CanonicalPortID(raw)
		prefix, n, ok := model.SplitPortID(id)
		if !ok || n <= 0 {
			verbatim = append(verbatim, id)
			continue
		}
		if _, exists := groups[prefix]; !exists {
			order = append(order, prefix)
		}
		groups[prefix] = append(groups[prefix], n)
	}
	model.SortInterfaces(order)

	var tokens []string
	for _, prefix := range order {
		expr, err := Compact(groups[prefix])
		if err != nil {
			return "", err
		}
		for _, part := range strings.Split(expr, Delimiter) {
			tokens = append(tokens, prefix+part)
		}
	}
	tokens = append(tokens, verbatim...)
	return strings.Join(tokens, Delimiter), nil
}

// Batches 去重并按接口顺序切分批次，每批不超过 size
func Batches(ids []string, size int) [][]string {
	if size <= 0 {
		size = MaxBatchSize
	}
	seen := make(map[string]struct{}, len(ids))
	uniq := make([]string, 0, len(ids))
	for _, raw := range ids {
		id := model.CanonicalPortID(raw)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		uniq = append(uniq, id)
	}
	model.SortInterfaces(uniq)

	var out [][]string
	for len(uniq) > 0 {
		n := size
		if n > len(uniq) {
			n = len(uniq)
		}
		out = append(out, uniq[:n:n])
		uniq = uniq[n:]
	}
	return out
}
