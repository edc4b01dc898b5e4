package postgres

import (
	"fmt"
	"math/big"
)

// Token and USD amounts are NUMERIC(78,0) in SQL and *big.Int in Go. They
// cross the driver boundary as decimal strings in both directions: parameters
// are cast with ::numeric in the query, selected columns with ::text.

func numArg(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}

func scanBig(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("postgres: invalid numeric %q", s)
	}
	return n, nil
}

func scanBigPtr(s *string) (*big.Int, error) {
	if s == nil {
		return nil, nil
	}
	return scanBig(*s)
}
