package endpoint

import "net"

// writeAll retries partial writes on conn until all of p has been written
// or an error occurs, per the Endpoint.Write contract (spec.md §3).
func writeAll(conn net.Conn, p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := conn.Write(p[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
