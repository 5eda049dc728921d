package events

// Exchange is the topic namespace every event is published under.
const Exchange = "geo_nap.events"

// Queue is a durable subscription bound to one routing key.
type Queue struct {
	Name    string
	Binding Type
}

func (q Queue) DeadLetterTopic() string {
	return q.Name + ".dead-letter"
}

// TopicFor maps a routing key onto a broker topic.
func TopicFor(exchange string, t Type) string {
	if exchange == "" {
		exchange = Exchange
	}
	return exchange + "." + string(t)
}

var (
	QueuePlanCreated            = Queue{Name: "geo_nap.intelligence.plan.created", Binding: PlanCreated}
	QueueSimulationRequested    = Queue{Name: "geo_nap.simulation.requested", Binding: SimulationRequested}
	QueueSimulationResult       = Queue{Name: "geo_nap.intelligence.simulation.result", Binding: SimulationResult}
	QueueSimulationResultFailed = Queue{Name: "geo_nap.intelligence.simulation.result.failed", Binding: SimulationResultFailed}
	QueueSimulationCompleted    = Queue{Name: "geo_nap.simulation.completed", Binding: SimulationCompleted}
	QueueSimulationFailed       = Queue{Name: "geo_nap.simulation.failed", Binding: SimulationFailed}
)

// AllQueues lists every queue in the pipeline topology.
func AllQueues() []Queue {
	return []Queue{
		QueuePlanCreated,
		QueueSimulationRequested,
		QueueSimulationResult,
		QueueSimulationResultFailed,
		QueueSimulationCompleted,
		QueueSimulationFailed,
	}
}
