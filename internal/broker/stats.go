package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// PartitionLag describes one partition of a consumer group's topic.
type PartitionLag struct {
	Partition     int32 `json:"partition"`
	CurrentOffset int64 `json:"currentOffset"`
	EndOffset     int64 `json:"endOffset"`
	Lag           int64 `json:"lag"`
}

// GroupStats summarizes a consumer group's position on a topic.
type GroupStats struct {
	Topic           string         `json:"topic"`
	GroupID         string         `json:"groupId"`
	ActiveConsumers int            `json:"activeConsumers"`
	TotalLag        int64          `json:"totalLag"`
	Partitions      []PartitionLag `json:"partitions"`
}

// GroupLag derives per-partition and total lag for a consumer group on
// a topic, plus the group's live member count.
func (c *Client) GroupLag(ctx context.Context, topic, groupID string) (*GroupStats, error) {
	admin, err := kafka.NewAdminClientFromProducer(c.producer)
	if err != nil {
		return nil, fmt.Errorf("create admin client: %w", err)
	}
	defer admin.Close()

	meta, err := admin.GetMetadata(&topic, false, int(10*time.Second/time.Millisecond))
	if err != nil {
		return nil, fmt.Errorf("topic metadata for %s: %w", topic, err)
	}
	topicMeta, ok := meta.Topics[topic]
	if !ok {
		return nil, fmt.Errorf("topic %s not found", topic)
	}

	partitions := make([]kafka.TopicPartition, 0, len(topicMeta.Partitions))
	for _, p := range topicMeta.Partitions {
		partitions = append(partitions, kafka.TopicPartition{Topic: &topic, Partition: p.ID})
	}

	committed, err := admin.ListConsumerGroupOffsets(ctx, []kafka.ConsumerGroupTopicPartitions{
		{Group: groupID, Partitions: partitions},
	})
	if err != nil {
		return nil, fmt.Errorf("group offsets for %s: %w", groupID, err)
	}

	specs := make(map[kafka.TopicPartition]kafka.OffsetSpec, len(partitions))
	for _, tp := range partitions {
		specs[tp] = kafka.LatestOffsetSpec
	}
	ends, err := admin.ListOffsets(ctx, specs)
	if err != nil {
		return nil, fmt.Errorf("end offsets for %s: %w", topic, err)
	}

	endByPartition := make(map[int32]int64, len(ends.ResultInfos))
	for tp, info := range ends.ResultInfos {
		endByPartition[tp.Partition] = int64(info.Offset)
	}

	stats := &GroupStats{Topic: topic, GroupID: groupID}
	for _, group := range committed.ConsumerGroupsTopicPartitions {
		for _, tp := range group.Partitions {
			current := int64(tp.Offset)
			if tp.Offset == kafka.OffsetInvalid {
				current = 0
			}
			end := endByPartition[tp.Partition]
			lag := end - current
			if lag < 0 {
				lag = 0
			}
			stats.Partitions = append(stats.Partitions, PartitionLag{
				Partition:     tp.Partition,
				CurrentOffset: current,
				EndOffset:     end,
				Lag:           lag,
			})
			stats.TotalLag += lag
		}
	}

	desc, err := admin.DescribeConsumerGroups(ctx, []string{groupID})
	if err == nil {
		for _, g := range desc.ConsumerGroupDescriptions {
			if g.GroupID == groupID {
				stats.ActiveConsumers = len(g.Members)
			}
		}
	}

	return stats, nil
}
