// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package protocol holds the single-delimiter text codec spoken between relay
// clients and the server. A single inbound read is one message; there is no
// length prefix and no reassembly across reads.
package protocol
