package influx

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/diwise/integration-ruuvi/domain"
	testutils "github.com/diwise/service-chassis/pkg/test/http"
	"github.com/diwise/service-chassis/pkg/test/http/expects"
	"github.com/diwise/service-chassis/pkg/test/http/response"
	"github.com/matryer/is"
)

var Expects = testutils.Expects
var Returns = testutils.Returns
var method = expects.RequestMethod

func TestWritePoint(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(
			is,
			method(http.MethodPost),
		),
		Returns(
			response.Code(http.StatusNoContent),
			response.Body([]byte("")),
		),
	)

	w, err := New(Config{URL: s.URL(), Database: "ruuvi"})
	is.NoErr(err)
	defer w.Close()

	err = w.Write(context.Background(), testPoint())
	is.NoErr(err)
}

func TestThatWriteFailsIfResponseCodeIsNotOK(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(
			is,
			method(http.MethodPost),
		),
		Returns(
			response.Code(http.StatusInternalServerError),
			response.Body([]byte(`{"error":"database not found"}`)),
		),
	)

	w, err := New(Config{URL: s.URL(), Database: "ruuvi"})
	is.NoErr(err)
	defer w.Close()

	err = w.Write(context.Background(), testPoint())
	is.True(err != nil)
}

func TestThatWriteFailsWithoutFields(t *testing.T) {
	is := is.New(t)

	w, err := New(Config{URL: "http://localhost:8086", Database: "ruuvi"})
	is.NoErr(err)
	defer w.Close()

	dp := testPoint()
	dp.Fields = map[string]any{}

	err = w.Write(context.Background(), dp)
	is.True(err != nil)
}

func TestPrinterWritesLineProtocol(t *testing.T) {
	is := is.New(t)

	buf := &bytes.Buffer{}
	p := NewPrinter(buf)

	err := p.Write(context.Background(), testPoint())
	is.NoErr(err)

	line := buf.String()
	is.True(strings.HasPrefix(line, "ruuvi_measurements,mac=AABBCCDDEEFF,name=Sauna "))
	is.True(strings.Contains(line, "dataFormat=5i"))
	is.True(strings.Contains(line, "temperature=2.15"))
	is.True(strings.HasSuffix(line, " 1700000000000000000\n"))
}

func testPoint() domain.DataPoint {
	return domain.DataPoint{
		Measurement: "ruuvi_measurements",
		Tags:        map[string]string{"mac": "AABBCCDDEEFF", "name": "Sauna"},
		Fields: map[string]any{
			"temperature": 2.15,
			"humidity":    45.0,
			"dataFormat":  int64(5),
		},
		Timestamp: time.Unix(1700000000, 0),
	}
}
