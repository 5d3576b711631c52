package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/encoding/simplifiedchinese"
)

func TestDecodeTextUTF8(t *testing.T) {
	assert.Equal(t, "", DecodeText(nil))
	assert.Equal(t, "héllo", DecodeText([]byte("héllo")))
}

func TestDecodeTextGB18030(t *testing.T) {
	raw, err := simplifiedchinese.GB18030.NewEncoder().Bytes([]byte("数据质量"))
	assert.NoError(t, err)
	assert.Equal(t, "数据质量", DecodeText(raw))
}
