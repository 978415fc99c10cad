package codec_test

import (
	"testing"

	"github.com/matryer/is"
	"github.com/nivrem/nipc/codec"
)

type payload struct {
	Name   string         `json:"name"`
	Count  int            `json:"count"`
	Ratio  float64        `json:"ratio"`
	Tags   []string       `json:"tags"`
	Nested map[string]int `json:"nested"`
}

func testPayload() payload {
	return payload{
		Name:   "probe",
		Count:  42,
		Ratio:  3.14159,
		Tags:   []string{"a", "b", "c"},
		Nested: map[string]int{"x": 1},
	}
}

func TestJSONRoundTrip(t *testing.T) {
	asrt := is.New(t)
	c := codec.JSON()
	asrt.Equal(c.Name(), "json")

	data, err := c.Marshal(testPayload())
	asrt.NoErr(err)

	var got payload
	asrt.NoErr(c.Unmarshal(data, &got))
	asrt.Equal(got, testPayload())
}

func TestMsgpackRoundTrip(t *testing.T) {
	asrt := is.New(t)
	c := codec.Msgpack()
	asrt.Equal(c.Name(), "msgpack")

	data, err := c.Marshal(testPayload())
	asrt.NoErr(err)

	var got payload
	asrt.NoErr(c.Unmarshal(data, &got))
	asrt.Equal(got, testPayload())
}

func TestRegistry(t *testing.T) {
	asrt := is.New(t)

	asrt.True(codec.Get("json") != nil)
	asrt.True(codec.Get("msgpack") != nil)
	asrt.True(codec.Get("pickle") == nil)
	asrt.Equal(codec.Default().Name(), "json")
}
