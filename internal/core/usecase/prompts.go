package usecase

import (
	"fmt"
	"strings"

	"github.com/kirillkom/skincare-rag/internal/core/domain"
)

const hydeSystemPrompt = `You write short retrieval notes for a skincare knowledge base about Korean multi-step routines.
Given a user question, write a hypothetical passage (3-5 sentences) that a relevant product description,
ingredient guide or routine step would contain. Mention concrete product categories, active ingredients,
skin types and concerns when they apply. Do not answer conversationally and do not add disclaimers.`

const stepBackSystemPrompt = `You help a retrieval system find background knowledge for skincare questions.
Rewrite the user question as the general principle behind it instead of the literal question:
active-ingredient compatibility, irritation risk, application order, usage frequency or routine structure.
Write 2-3 sentences in plain English. Do not mention specific brands or products.`

const answerSystemPrompt = `You are a skincare assistant specializing in Korean multi-step routines.
Answer in English in a clear and practical way.
Use ONLY the provided context about products, ingredients, routines and rules.
If the information is missing, say that it is not present in the dataset.
Whenever possible, recommend products that exist in the dataset.`

const noDocumentsAnswer = "Sorry, I could not find any relevant documents in the knowledge base."

const contextSeparator = "\n---------------------\n"

func buildRewriteUserPrompt(question string) string {
	return "Question:\n" + strings.TrimSpace(question) + "\n\nRetrieval note:"
}

func buildStepBackUserPrompt(question string) string {
	return "Question:\n" + strings.TrimSpace(question) + "\n\nStep-back principle:"
}

func buildAnswerUserPrompt(question string, hits []domain.Candidate) string {
	return fmt.Sprintf("User question:\n%s\n\nRelevant context from knowledge base:\n%s\n",
		strings.TrimSpace(question), buildContextFromHits(hits))
}

func buildContextFromHits(hits []domain.Candidate) string {
	blocks := make([]string, 0, len(hits))
	for _, hit := range hits {
		var b strings.Builder
		fmt.Fprintf(&b, "Document: %s\n", hit.DocID)
		fmt.Fprintf(&b, "Type: %s\n", hit.Type)
		if hit.Payload.Title != "" {
			fmt.Fprintf(&b, "Title: %s\n", hit.Payload.Title)
		}
		if len(hit.Payload.SkinType) > 0 {
			fmt.Fprintf(&b, "Skin type: %s\n", strings.Join(hit.Payload.SkinType, ", "))
		}
		if len(hit.Payload.Concerns) > 0 {
			fmt.Fprintf(&b, "Concerns: %s\n", strings.Join(hit.Payload.Concerns, ", "))
		}
		if hit.Payload.AgeRange != "" {
			fmt.Fprintf(&b, "Age range: %s\n", hit.Payload.AgeRange)
		}
		fmt.Fprintf(&b, "Text: %s\n", hit.Payload.Text)
		fmt.Fprintf(&b, "Score: %g\n", hit.Score)
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, contextSeparator)
}
