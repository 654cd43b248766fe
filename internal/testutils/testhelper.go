package testutils

import (
	"testing"

	"github.com/sirupsen/logrus"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
}

// NewTestHelper creates a test helper with a debug logger.
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	return &TestHelper{
		T:      t,
		Logger: logger,
	}
}

func CreateMockPeripheralDevice() *PeripheralDeviceBuilder {
	return NewPeripheralDeviceBuilder()
}

func CreateMockPeripheralDeviceFromJSON(jsonStrFmt string, args ...interface{}) *PeripheralDeviceBuilder {
	return NewPeripheralDeviceBuilder().FromJSON(jsonStrFmt, args...)
}

// CreatePolarSensor returns a builder for a sensor with every feature the
// session manager negotiates: heart rate, battery at the given level, device
// information, PMD streaming (ECG, ACC) and PSFTP file transfer.
func CreatePolarSensor(name string, battery byte) *PeripheralDeviceBuilder {
	return CreateMockPeripheralDeviceFromJSON(`
	{
		"name": %q,
		"services": [
			{
				"uuid": "180D",
				"characteristics": [
					{ "uuid": "2A37", "properties": "notify" }
				]
			},
			{
				"uuid": "180F",
				"characteristics": [
					{ "uuid": "2A19", "properties": "read,notify", "value": [%d] }
				]
			},
			{
				"uuid": "180A",
				"characteristics": [
					{ "uuid": "2A29", "properties": "read", "value": "UG9sYXIgRWxlY3RybyBPeQ==" },
					{ "uuid": "2A24", "properties": "read", "value": "SDEw" }
				]
			},
			{
				"uuid": "FB005C80-02E7-F387-1CAD-8ACD2D8DF0C8",
				"characteristics": [
					{ "uuid": "FB005C81-02E7-F387-1CAD-8ACD2D8DF0C8", "properties": "write,notify" },
					{ "uuid": "FB005C82-02E7-F387-1CAD-8ACD2D8DF0C8", "properties": "notify" }
				]
			},
			{
				"uuid": "FEEE",
				"characteristics": [
					{ "uuid": "FB005C51-02E7-F387-1CAD-8ACD2D8DF0C8", "properties": "write,notify" }
				]
			}
		],
		"streaming": ["ecg", "acc"]
	}`, name, battery)
}
