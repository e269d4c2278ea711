package record

import "github.com/vmihailenco/msgpack/v5"

// ExportBinary encodes log as msgpack, the compact on-disk/over-the-wire
// form used for bug-report log bundles. The canonical save format and
// worker-protocol messages stay JSON-only; this is a separate, optional
// export path.
func ExportBinary(log Log) ([]byte, error) {
	return msgpack.Marshal(log)
}

// ImportBinary decodes a msgpack-encoded log previously produced by
// ExportBinary.
func ImportBinary(data []byte) (Log, error) {
	var log Log
	if err := msgpack.Unmarshal(data, &log); err != nil {
		return Log{}, err
	}
	return log, nil
}
