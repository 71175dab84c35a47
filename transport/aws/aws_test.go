package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-aws/sns"
	"github.com/ThreeDotsLabs/watermill-aws/sqs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/logflow/internal/runtime/config"
	"github.com/drblury/logflow/transport"
	"github.com/drblury/logflow/transport/transporttest"
)

type captured struct {
	account, region string
	pub             sns.PublisherConfig
	sub             sns.SubscriberConfig
	sqs             sqs.SubscriberConfig
	publisher       *transporttest.Publisher
}

func stub(t *testing.T, loadErr, subErr error) *captured {
	t.Helper()
	origLoader, origResolver, origPub, origSub := DefaultConfigLoader, TopicResolverFactory, PublisherFactory, SubscriberFactory
	t.Cleanup(func() {
		DefaultConfigLoader, TopicResolverFactory, PublisherFactory, SubscriberFactory = origLoader, origResolver, origPub, origSub
	})

	c := &captured{publisher: &transporttest.Publisher{}}
	DefaultConfigLoader = func(context.Context, ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{Region: "eu-central-1"}, loadErr
	}
	TopicResolverFactory = func(accountID, region string) (*sns.GenerateArnTopicResolver, error) {
		c.account, c.region = accountID, region
		return &sns.GenerateArnTopicResolver{}, nil
	}
	PublisherFactory = func(cfg sns.PublisherConfig, _ watermill.LoggerAdapter) (message.Publisher, error) {
		c.pub = cfg
		return c.publisher, nil
	}
	SubscriberFactory = func(cfg sns.SubscriberConfig, sqsCfg sqs.SubscriberConfig, _ watermill.LoggerAdapter) (message.Subscriber, error) {
		c.sub, c.sqs = cfg, sqsCfg
		return &transporttest.Subscriber{}, subErr
	}
	return c
}

func TestRegistered(t *testing.T) {
	assert.True(t, transport.DefaultRegistry.Has(TransportName))
	assert.Equal(t, transport.AWSCapabilities, Capabilities())
}

func TestBuild(t *testing.T) {
	c := stub(t, nil, nil)
	tr, err := Build(context.Background(), &config.Config{AWSAccountID: "123456789012", AWSRegion: "us-west-2"}, watermill.NopLogger{})
	require.NoError(t, err)
	assert.Same(t, c.publisher, tr.Publisher)
	assert.Equal(t, "123456789012", c.account)
	assert.Equal(t, "us-west-2", c.region)
	assert.Equal(t, "us-west-2", c.pub.AWSConfig.Region)
	assert.Empty(t, c.pub.OptFns)
	assert.Empty(t, c.sqs.OptFns)

	name, err := c.sub.GenerateSqsQueueName(context.Background(), "arn:aws:sns:us-west-2:123456789012:logs")
	require.NoError(t, err)
	assert.Equal(t, "logflow-logs", name)
}

func TestBuildWithEndpoint(t *testing.T) {
	c := stub(t, nil, nil)
	_, err := Build(context.Background(), &config.Config{AWSEndpoint: "http://localhost:4566"}, watermill.NopLogger{})
	require.NoError(t, err)
	assert.Equal(t, localstackAccountID, c.account)
	assert.Equal(t, "eu-central-1", c.region)
	assert.Len(t, c.pub.OptFns, 1)
	assert.Len(t, c.sub.OptFns, 1)
	assert.Len(t, c.sqs.OptFns, 1)
}

func TestBuildErrors(t *testing.T) {
	boom := errors.New("boom")

	stub(t, boom, nil)
	_, err := Build(context.Background(), &config.Config{}, watermill.NopLogger{})
	assert.ErrorIs(t, err, boom)

	_, err = Build(context.Background(), &config.Config{AWSEndpoint: "localhost"}, watermill.NopLogger{})
	assert.Error(t, err)

	c := stub(t, nil, boom)
	_, err = Build(context.Background(), &config.Config{AWSAccountID: "123456789012"}, watermill.NopLogger{})
	assert.ErrorIs(t, err, boom)
	assert.True(t, c.publisher.Closed())
}

func TestResolveAccountAndRegion(t *testing.T) {
	account, region := resolveAccountAndRegion(&config.Config{AWSAccountID: `"123456789012"`}, watermill.NopLogger{}, "us-east-1")
	assert.Equal(t, "123456789012", account)
	assert.Equal(t, "us-east-1", region)

	account, _ = resolveAccountAndRegion(&config.Config{AWSAccountID: "42", AWSEndpoint: "http://localhost:4566"}, watermill.NopLogger{}, "")
	assert.Equal(t, localstackAccountID, account)

	account, _ = resolveAccountAndRegion(&config.Config{AWSAccountID: "42"}, watermill.NopLogger{}, "")
	assert.Equal(t, "42", account)
}
