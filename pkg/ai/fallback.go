package ai

import (
	"fmt"

	"bookhabit/pkg/domain"
)

// Templated content used when no generation backend is configured or its
// output is unusable. Every function here is a pure function of its inputs
// so results are reproducible.

const UnknownAuthor = "Unknown Author"

func fallbackSummary(title, author string) string {
	return fmt.Sprintf("%q by %s is a compelling book that explores important themes and concepts. "+
		"This book offers valuable insights and practical wisdom that can be applied to daily life.", title, author)
}

func fallbackPrinciples() []string {
	return []string{
		"Focus on continuous improvement and personal growth",
		"Develop strong habits and consistent routines",
		"Build meaningful relationships and connections",
		"Embrace challenges as opportunities for learning",
		"Maintain a positive mindset and resilience",
	}
}

func fallbackDays(title string) []domain.DayContent {
	return []domain.DayContent{
		{
			Day:         1,
			Lesson:      fmt.Sprintf("Begin your journey with %q. Reflect on what you hope to learn and how you can apply the wisdom from this book.", title),
			Exercise:    "Write down three goals you have for reading this book and how you plan to apply its lessons.",
			Affirmation: "I am open to learning and growing through the wisdom of this book.",
			Thought:     "Every great journey begins with a single step. What step will you take today?",
		},
		{
			Day:         2,
			Lesson:      "Building Awareness - Practice mindfulness and self-awareness today.",
			Exercise:    "Notice your thoughts, emotions, and behaviors without judgment. Keep a brief journal of your observations.",
			Affirmation: "I am becoming more aware of my thoughts and actions each day.",
			Thought:     "Awareness is the first step toward positive change. What patterns do you notice in yourself?",
		},
		{
			Day:         3,
			Lesson:      "Taking Action - Identify one small action you can take today that aligns with the principles from the book.",
			Exercise:    "Choose one principle from the book and take a concrete action to apply it in your life today.",
			Affirmation: "I have the power to take positive actions that align with my values.",
			Thought:     "Small actions compound over time. What small step can you take today?",
		},
		{
			Day:         4,
			Lesson:      "Reflection and Growth - Take time to reflect on your progress and learning journey.",
			Exercise:    "Reflect on what you've learned so far. What challenges have you faced? What successes have you experienced?",
			Affirmation: "I am growing and learning through reflection and self-awareness.",
			Thought:     "Growth often comes through challenges. How have you grown through recent difficulties?",
		},
		{
			Day:         5,
			Lesson:      "Sharing Wisdom - Share something you've learned with someone else today.",
			Exercise:    "Share a key insight or lesson from the book with a friend, family member, or colleague.",
			Affirmation: "I have valuable wisdom to share with others, and sharing helps me learn more deeply.",
			Thought:     "Teaching others is one of the best ways to learn. Who can you share your insights with today?",
		},
	}
}

func fallbackAdditionalDays(title string, currentDays, additional int) []domain.DayContent {
	days := make([]domain.DayContent, 0, additional)
	for i := 1; i <= additional; i++ {
		n := currentDays + i
		days = append(days, domain.DayContent{
			Day:         n,
			Lesson:      fmt.Sprintf("Day %d: Continue your journey with %q. Focus on applying the principles you've learned so far.", n, title),
			Exercise:    fmt.Sprintf("Day %d: Practice one of the key principles from the book for 15 minutes today.", n),
			Affirmation: fmt.Sprintf("Day %d: I am growing and learning every day through the wisdom of great books.", n),
			Thought:     fmt.Sprintf("Day %d: Reflect on how the lessons from %q are shaping your daily life.", n, title),
		})
	}
	return days
}
