// Package transports registers every built-in broker with the default registry.
package transports

import (
	_ "github.com/drblury/logflow/transport/aws"
	_ "github.com/drblury/logflow/transport/channel"
	_ "github.com/drblury/logflow/transport/http"
	_ "github.com/drblury/logflow/transport/io"
	_ "github.com/drblury/logflow/transport/kafka"
	_ "github.com/drblury/logflow/transport/nats"
	_ "github.com/drblury/logflow/transport/rabbitmq"
)
