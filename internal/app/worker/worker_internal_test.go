package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCharactersForMinute(t *testing.T) {
	ids := []int32{90000001, 90000002, 90000011, 90000020}
	cases := []struct {
		minute int
		want   []int32
	}{
		{1, []int32{90000001, 90000011}},
		{11, []int32{90000001, 90000011}},
		{2, []int32{90000002}},
		{0, []int32{90000020}},
		{59, nil},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, charactersForMinute(ids, tc.minute), "minute %d", tc.minute)
	}
}
