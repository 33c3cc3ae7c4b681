package pgconn

import "strconv"

func parseUint32Text(b []byte) (uint32, error) {
	v, err := strconv.ParseUint(string(b), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

func parseInt16Text(b []byte) (int16, error) {
	v, err := strconv.ParseInt(string(b), 10, 16)
	if err != nil {
		return 0, err
	}
	return int16(v), nil
}
