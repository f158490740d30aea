package archive

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `1700000000000,100.0,101.0,99.0,100.5,12.0,1700000059999,1200.0,34,6.0,600.0,0
1700000060000,100.5,102.0,100.0,101.5,10.0,1700000119999,1015.0,28,5.0,500.0,0
`

func TestReadCSV(t *testing.T) {
	candles, err := ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Len(t, candles, 2)

	assert.Equal(t, int64(1700000000000), candles[0].OpenTime)
	assert.Equal(t, 100.5, candles[0].Close)
	assert.Equal(t, 34, candles[0].TradeCount)
	// Adjacent archive rows are contiguous bars.
	assert.Equal(t, candles[0].CloseTime+1, candles[1].OpenTime)
}

func TestReadCSVSkipsHeader(t *testing.T) {
	withHeader := "open_time,open,high,low,close,volume,close_time,quote_volume,count,taker_buy_base,taker_buy_quote,ignore\n" + sampleCSV
	candles, err := ReadCSV(strings.NewReader(withHeader))
	require.NoError(t, err)
	assert.Len(t, candles, 2)
}

func TestReadCSVRejectsShortRow(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("1700000000000,100.0,101.0\n"))
	require.Error(t, err)
}
