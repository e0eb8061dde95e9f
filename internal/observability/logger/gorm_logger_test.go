package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOperationFromSQL(t *testing.T) {
	cases := []struct {
		sql  string
		want string
	}{
		{sql: "UPDATE recyclers SET current_load = current_load + 1", want: "UPDATE"},
		{sql: "  select * from deliveries", want: "SELECT"},
		{sql: "WITH pending AS (SELECT id FROM deliveries) SELECT * FROM pending", want: "SELECT"},
		{sql: "SAVEPOINT sp1", want: "SAVEPOINT"},
		{sql: "", want: "UNKNOWN"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, operationFromSQL(tc.sql), tc.sql)
	}
}
