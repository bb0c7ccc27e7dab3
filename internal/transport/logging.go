// SPDX-License-Identifier: MIT
package transport

import (
	applog "rtio/internal/log"
)

// LoggingTransport implements the Transport interface by logging data at
// debug level.
type LoggingTransport struct {
	log applog.Logger
}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	lt := &LoggingTransport{log: applog.Named("transport")}
	lt.log.Infof("Using LoggingTransport")
	return lt
}

// Send logs the received data.
func (lt *LoggingTransport) Send(data any) error {
	lt.log.Debugf("%+v", data)
	return nil
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	lt.log.Debugf("Close called")
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
