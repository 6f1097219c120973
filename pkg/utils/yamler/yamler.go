// Package yamler builds yaml.Node trees, so that documents can carry comments and keep key order.
package yamler

import (
	"time"

	"gopkg.in/yaml.v3"
)

type Option func(*yaml.Node) *yaml.Node

func WithHeadComment(comment string) Option {
	return func(n *yaml.Node) *yaml.Node {
		n.HeadComment = comment
		return n
	}
}

func WithLineComment(comment string) Option {
	return func(n *yaml.Node) *yaml.Node {
		n.LineComment = comment
		return n
	}
}

func Text(value string, options ...Option) *yaml.Node {
	n := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
	for _, opt := range options {
		n = opt(n)
	}
	return n
}

// Time renders t in RFC3339 with nanoseconds, in UTC.
func Time(t time.Time, options ...Option) *yaml.Node {
	n := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!timestamp", Value: t.UTC().Format(time.RFC3339Nano)}
	for _, opt := range options {
		n = opt(n)
	}
	return n
}

type MapEntry struct {
	Key   *yaml.Node
	Value *yaml.Node
}

func Entry(k *yaml.Node, v *yaml.Node) MapEntry {
	return MapEntry{Key: k, Value: v}
}

func Map(e ...MapEntry) *yaml.Node {
	content := []*yaml.Node{}

	for _, ee := range e {
		content = append(content, ee.Key, ee.Value)
	}

	return &yaml.Node{Kind: yaml.MappingNode, Content: content}
}

// Document wraps root as a document, with a head comment on top if given.
func Document(root *yaml.Node, options ...Option) *yaml.Node {
	n := &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}
	for _, opt := range options {
		n = opt(n)
	}
	return n
}
